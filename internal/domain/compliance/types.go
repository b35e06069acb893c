// Пакет compliance: доменные типы проверки соответствия контента:
// статусы записи, периодичность проверок, действие при отсутствии ответа,
// действие мейнтейнера и статусы массовых рассылок.
//
// Все перечисления закрытые: значения вне набора отклоняются Parse*-функциями.
package compliance

import (
	"fmt"
	"time"
)

// Status: статус записи соответствия.
type Status string

const (
	// StatusPending: ожидает наступления срока проверки.
	StatusPending Status = "pending"
	// StatusCompliant: контент подтверждён мейнтейнером или менеджером.
	StatusCompliant Status = "compliant"
	// StatusOverdue: срок проверки наступил, уведомление отправлено.
	StatusOverdue Status = "overdue"
	// StatusPendingChanges: мейнтейнер прислал правки, ждут менеджера.
	StatusPendingChanges Status = "pending_changes"
)

// Statuses: все статусы в порядке отображения в отчётах.
var Statuses = []Status{StatusPending, StatusCompliant, StatusOverdue, StatusPendingChanges}

// Valid проверяет, что статус входит в допустимый набор.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompliant, StatusOverdue, StatusPendingChanges:
		return true
	}
	return false
}

// ParseStatus преобразует строку в Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("недопустимый статус %q", s)
	}
	return st, nil
}

// Frequency: периодичность проверок.
type Frequency string

const (
	FrequencyMonthly    Frequency = "monthly"
	FrequencyQuarterly  Frequency = "quarterly"
	FrequencyBiannually Frequency = "biannually"
	FrequencyYearly     Frequency = "yearly"
)

// Frequencies: допустимые значения периодичности.
var Frequencies = []Frequency{FrequencyMonthly, FrequencyQuarterly, FrequencyBiannually, FrequencyYearly}

// Valid проверяет, что периодичность входит в допустимый набор.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyMonthly, FrequencyQuarterly, FrequencyBiannually, FrequencyYearly:
		return true
	}
	return false
}

// ParseFrequency преобразует строку в Frequency.
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(s)
	if !f.Valid() {
		return "", fmt.Errorf("недопустимая периодичность %q, допустимые: monthly, quarterly, biannually, yearly", s)
	}
	return f, nil
}

// Months возвращает длину интервала в календарных месяцах.
// Неизвестное значение трактуется как monthly.
func (f Frequency) Months() int {
	switch f {
	case FrequencyQuarterly:
		return 3
	case FrequencyBiannually:
		return 6
	case FrequencyYearly:
		return 12
	default:
		return 1
	}
}

// NextReviewDate возвращает дату следующей проверки относительно from.
// Сдвиг календарный (AddDate), а не фиксированное число часов.
func (f Frequency) NextReviewDate(from time.Time) time.Time {
	return from.AddDate(0, f.Months(), 0)
}

// IntervalBefore возвращает момент на один интервал раньше at.
func (f Frequency) IntervalBefore(at time.Time) time.Time {
	return at.AddDate(0, -f.Months(), 0)
}

// NonResponseAction: действие с контентом, по которому нет ответа.
type NonResponseAction string

const (
	// NonResponseNothing: ничего не делать.
	NonResponseNothing NonResponseAction = "nothing"
	// NonResponseDraft: перевести контент в черновик.
	NonResponseDraft NonResponseAction = "draft"
)

// Valid проверяет, что действие входит в допустимый набор.
func (a NonResponseAction) Valid() bool {
	return a == NonResponseNothing || a == NonResponseDraft
}

// ParseNonResponseAction преобразует строку в NonResponseAction.
func ParseNonResponseAction(s string) (NonResponseAction, error) {
	a := NonResponseAction(s)
	if !a.Valid() {
		return "", fmt.Errorf("недопустимое действие %q, допустимые: nothing, draft", s)
	}
	return a, nil
}

// ReviewAction: решение мейнтейнера в форме проверки.
type ReviewAction string

const (
	ActionApprove ReviewAction = "approve"
	ActionEdit    ReviewAction = "edit"
)

// ParseReviewAction преобразует значение поля формы в ReviewAction.
// Пустое значение означает approve.
func ParseReviewAction(s string) (ReviewAction, error) {
	switch ReviewAction(s) {
	case "", ActionApprove:
		return ActionApprove, nil
	case ActionEdit:
		return ActionEdit, nil
	}
	return "", fmt.Errorf("недопустимое действие %q, допустимые: approve, edit", s)
}

// BulkStatus: статус массовой рассылки.
type BulkStatus string

const (
	BulkRunning   BulkStatus = "running"
	BulkCompleted BulkStatus = "completed"
	BulkFailed    BulkStatus = "failed"
)

// Valid проверяет, что статус входит в допустимый набор.
func (s BulkStatus) Valid() bool {
	switch s {
	case BulkRunning, BulkCompleted, BulkFailed:
		return true
	}
	return false
}

// Terminal возвращает true для конечных статусов.
func (s BulkStatus) Terminal() bool {
	return s == BulkCompleted || s == BulkFailed
}

// ParseBulkStatus преобразует строку в BulkStatus.
func ParseBulkStatus(s string) (BulkStatus, error) {
	st := BulkStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("недопустимый статус операции %q, допустимые: running, completed, failed", s)
	}
	return st, nil
}
