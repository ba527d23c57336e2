package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"time"
)

// Key endereça uma única janela deslizante: "<scope>:<identifier>".
type Key string

func NewKey(scope, identifier string) Key {
	if scope == "" {
		scope = DefaultScope
	}
	return Key(scope + ":" + identifier)
}

// DefaultScope é usado pelo limitador ad-hoc quando nenhum scope é informado.
const DefaultScope = "default"

// Log é a sequência ordenada de RequestRecords de uma chave: timestamps em
// segundos (epoch, com fração). Só requisições permitidas entram no log.
type Log []float64

// TransformFunc recebe o valor atual (nil se ausente) e devolve o novo valor.
//
// A função pode ser chamada mais de uma vez por AtomicUpdate (retry de CAS),
// portanto não deve acumular efeitos colaterais entre chamadas.
type TransformFunc func(current Log) Log

// SharedStore é o key-value compartilhado com expiração por chave.
//
// AtomicUpdate deve executar ler-transformar-gravar como uma única operação
// atômica e gravar o resultado com TTL = ttl. Retorna o valor pós-transformação.
type SharedStore interface {
	AtomicUpdate(ctx context.Context, key Key, ttl time.Duration, fn TransformFunc) (Log, error)
}

// WindowResult é o resultado de um passo de janela deslizante feito no store.
type WindowResult struct {
	Allowed bool
	// Count é o tamanho do log depois do passo (inclui o novo registro se Allowed).
	Count int
	// Oldest é o registro mais antigo sobrevivente; zero quando o log está vazio.
	Oldest float64
}

// WindowStore é implementado por stores que fazem poda + append no servidor,
// como um único passo atômico, sem retry de CAS.
type WindowStore interface {
	SlideWindow(ctx context.Context, key Key, now float64, window time.Duration, limit int) (WindowResult, error)
}

// Counter decide se mais uma requisição cabe em (limit, window) para a chave.
type Counter interface {
	Check(ctx context.Context, key Key, limit int, window time.Duration) (Decision, error)
}

type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAt é o momento em que a janela volta a ter capacidade.
	ResetAt time.Time
	// RetryAfter só tem significado quando Allowed=false.
	RetryAfter time.Duration

	// Bypassed indica o atalho de admin (nenhum acesso ao store).
	Bypassed bool
	// Degraded indica fail-open: o store falhou e a requisição foi liberada.
	Degraded bool
}

// Unlimited é o valor de Limit/Remaining numa decisão de bypass (admin).
const Unlimited = 1<<31 - 1
