package domain

import "context"

// SlotPool limita quantas requisições ficam em voo ao mesmo tempo, antes
// mesmo do rate limit por janela.
//
// Acquire bloqueia até conseguir uma vaga ou até o ctx encerrar. Ao adquirir,
// retorna uma função de release que deve ser chamada exatamente uma vez.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
	// InUse é o número de vagas ocupadas agora (aproximado, para logs).
	InUse() int
}
