// Package aggregates implements the benefit write boundary on gorm.
//
// One transaction commits the grant row, the command outcome record and the
// outbox row, or none of them.
package aggregates
