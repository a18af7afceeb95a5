package models

// All lists every persisted model in dependency order. SQLite dev databases
// and package tests build their schema from it; Postgres uses the goose
// migrations.
func All() []any {
	return []any{
		&User{},
		&Movie{},
		&Rental{},
		&Transaction{},
		&StockMovement{},
		&OutboxEvent{},
	}
}
