// Package day содержит функции нормализации дат до начала суток.
// Сравнение "дата напоминания == сегодня" корректно только после приведения
// обеих дат к полуночи UTC, иначе совпадение зависит от времени запуска свипа.
package day

import "time"

// Normalize приводит дату к полуночи UTC.
func Normalize(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Same сообщает, приходятся ли обе даты на одни сутки UTC.
func Same(a, b time.Time) bool {
	return Normalize(a).Equal(Normalize(b))
}

// Key возвращает дату в формате 2006-01-02, используется в ключах дедупликации.
func Key(t time.Time) string {
	return Normalize(t).Format("2006-01-02")
}
