package domain

import "strings"

// Role описывает права пользователя в боте.
type Role string

const (
	RoleUser     Role = "user"
	RoleUploader Role = "uploader"
	RoleSudo     Role = "sudo"
	RoleOwner    Role = "owner"
)

var roleRank = map[Role]int{
	RoleUser:     0,
	RoleUploader: 1,
	RoleSudo:     2,
	RoleOwner:    3,
}

// ParseRole приводит строку к роли. Неизвестные значения считаются обычным пользователем.
func ParseRole(value string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := roleRank[role]; !ok {
		return RoleUser, false
	}
	return role, true
}

// AtLeast сообщает, что роль не ниже указанной.
func (r Role) AtLeast(min Role) bool {
	return roleRank[r] >= roleRank[min]
}

// CanUpload разрешает правку каталога.
func (r Role) CanUpload() bool {
	return r.AtLeast(RoleUploader)
}

// CanAdminister разрешает выдачу кодов, баннеры и частоту дропов без ограничений.
func (r Role) CanAdminister() bool {
	return r.AtLeast(RoleSudo)
}

// IsOwner разрешает разрушительные операции.
func (r Role) IsOwner() bool {
	return r == RoleOwner
}

// ResolveRole объединяет роль из хранилища со статическими списками из конфигурации.
func ResolveRole(stored Role, userID, ownerID int64, sudoIDs []int64) Role {
	if ownerID != 0 && userID == ownerID {
		return RoleOwner
	}
	for _, id := range sudoIDs {
		if id == userID && !stored.AtLeast(RoleSudo) {
			return RoleSudo
		}
	}
	if _, ok := roleRank[stored]; !ok {
		return RoleUser
	}
	return stored
}
