package model

import "time"

// SweepState: состояние периодической проверки (одна строка в БД, id = 1).
type SweepState struct {
	ID          int
	LastSweepAt *time.Time
	LastSummary *SweepSummary
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SweepSummary: итог одного прогона проверки.
type SweepSummary struct {
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	// Due: записей со сроком проверки
	Due int `json:"due"`
	// Sent, Failed: результат отправки уведомлений
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
	// Drafted: контента переведено в черновик
	Drafted int `json:"drafted"`
	// Errors: ошибок записи в БД
	Errors int `json:"errors"`
	// ReapedOperations: брошенных массовых операций помечено failed
	ReapedOperations int `json:"reaped_operations"`
}
