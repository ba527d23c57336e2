// Package clock abstrai o tempo para que o contador funcione com relógio
// real em produção e relógio virtual em testes/simulação.
package clock

import (
	"math"
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
}

// Real delega para time.Now.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

// Virtual é um relógio controlável: Advance move o tempo sem esperar.
// Seguro para uso concorrente.
type Virtual struct {
	mu      sync.RWMutex
	current time.Time
}

func NewVirtual(start time.Time) *Virtual {
	return &Virtual{current: start}
}

func (c *Virtual) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Advance avança o relógio. Panics se d < 0.
func (c *Virtual) Advance(d time.Duration) {
	if d < 0 {
		panic("clock: cannot advance by negative duration")
	}
	c.mu.Lock()
	c.current = c.current.Add(d)
	c.mu.Unlock()
}

// Seconds converte t para segundos epoch com fração (formato do RequestRecord).
func Seconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/float64(time.Second)
}

// FromSeconds é o inverso de Seconds.
func FromSeconds(s float64) time.Time {
	sec := math.Floor(s)
	nsec := math.Round((s - sec) * float64(time.Second))
	return time.Unix(int64(sec), int64(nsec))
}
