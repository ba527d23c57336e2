package domain

// Principal é o que a camada de autenticação (externa) sabe sobre o solicitante.
type Principal struct {
	ID      string
	Staff   bool
	Premium bool
}

// Identity é o resultado da resolução: identificador do bucket + tier.
type Identity struct {
	Identifier string
	Tier       Tier
}

// IdentityFor deriva a Identity de um principal autenticado.
func IdentityFor(p Principal) Identity {
	tier := TierAuthenticated
	switch {
	case p.Staff:
		tier = TierAdmin
	case p.Premium:
		tier = TierPremium
	}
	return Identity{Identifier: "user_" + p.ID, Tier: tier}
}

// AnonymousIdentity deriva a Identity de um IP.
func AnonymousIdentity(ip string) Identity {
	return Identity{Identifier: "ip_" + ip, Tier: TierAnonymous}
}
