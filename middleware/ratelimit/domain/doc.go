// Package domain define contratos e tipos de domínio para rate limit e concorrência.
//
// Este pacote não depende de net/http nem de implementações concretas:
// políticas (Tier/Category -> Policy), chaves, decisões e o contrato do
// store compartilhado (SharedStore.AtomicUpdate).
package domain
