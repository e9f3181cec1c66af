package models

// All lists the persisted models in dependency order.
func All() []any {
	return []any{&Role{}, &Clan{}, &User{}, &Account{}, &Token{}}
}
