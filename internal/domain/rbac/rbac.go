// Пакет rbac: определение роли пользователя admin API по группам IdP.
// Роли упорядочены по привилегиям: editor < admin.
package rbac

const (
	// RoleEditor: редактор: настройки соответствия отдельных единиц контента,
	// отправка уведомления по одной единице.
	RoleEditor = "editor"
	// RoleAdmin: администратор: настройки сервиса, рассылки, отчёты.
	RoleAdmin = "admin"
)

// roleWeight: вес роли для сравнения.
var roleWeight = map[string]int{
	RoleEditor: 1,
	RoleAdmin:  2,
}

// maxRole возвращает роль с максимальными привилегиями из двух.
func maxRole(a, b string) string {
	if roleWeight[a] >= roleWeight[b] {
		return a
	}
	return b
}

// HighestRole возвращает максимальную роль из набора.
// Для пустого набора возвращает пустую строку.
func HighestRole(roles []string) string {
	if len(roles) == 0 {
		return ""
	}
	highest := roles[0]
	for _, r := range roles[1:] {
		highest = maxRole(highest, r)
	}
	return highest
}

// MapGroupsToRole определяет роль пользователя по его группам IdP.
// Если ни одна группа не совпала, возвращает пустую строку.
func MapGroupsToRole(groups []string, adminGroups, editorGroups []string) string {
	adminSet := toSet(adminGroups)
	editorSet := toSet(editorGroups)

	var roles []string
	for _, g := range groups {
		if adminSet[g] {
			roles = append(roles, RoleAdmin)
		}
		if editorSet[g] {
			roles = append(roles, RoleEditor)
		}
	}

	return HighestRole(roles)
}

// IsValidRole проверяет, является ли строка допустимой ролью.
func IsValidRole(role string) bool {
	_, ok := roleWeight[role]
	return ok
}

// Satisfies проверяет, что роль не ниже требуемой.
// Admin удовлетворяет любому требованию editor.
func Satisfies(role, required string) bool {
	if !IsValidRole(role) || !IsValidRole(required) {
		return false
	}
	return roleWeight[role] >= roleWeight[required]
}

func toSet(items []string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, item := range items {
		s[item] = true
	}
	return s
}
