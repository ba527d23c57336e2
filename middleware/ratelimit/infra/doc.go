// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - MemoryStore: SharedStore em processo (mutex + TTL + janitor)
//   - RedisStore: SharedStore compartilhado com CAS via WATCH/MULTI
//   - ChanPool: semáforo simples para limite de concorrência
//   - MemoryStatsStore, RedisStatsStore, SQLStatsStore: estatísticas de decisões
package infra
