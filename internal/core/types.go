package core

import "keepernest/pkg/domain"

type (
	Asset           = domain.Asset
	Employee        = domain.Employee
	Actor           = domain.Actor
	Result          = domain.Result
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
)
