package domain

import "testing"

func TestResolveRole(t *testing.T) {
	tests := []struct {
		name    string
		stored  Role
		userID  int64
		ownerID int64
		sudo    []int64
		want    Role
	}{
		{name: "owner from config", stored: RoleUser, userID: 1, ownerID: 1, want: RoleOwner},
		{name: "sudo from config", stored: RoleUser, userID: 2, ownerID: 1, sudo: []int64{2}, want: RoleSudo},
		{name: "stored owner kept for sudo list", stored: RoleOwner, userID: 2, ownerID: 1, sudo: []int64{2}, want: RoleOwner},
		{name: "uploader stays uploader", stored: RoleUploader, userID: 3, ownerID: 1, want: RoleUploader},
		{name: "garbage becomes user", stored: Role("root"), userID: 4, ownerID: 1, want: RoleUser},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveRole(tt.stored, tt.userID, tt.ownerID, tt.sudo); got != tt.want {
				t.Fatalf("ResolveRole(%v, %d) = %v, want %v", tt.stored, tt.userID, got, tt.want)
			}
		})
	}
}

func TestRolePermissions(t *testing.T) {
	if RoleUser.CanUpload() {
		t.Fatal("обычный пользователь не должен загружать персонажей")
	}
	if !RoleUploader.CanUpload() || RoleUploader.CanAdminister() {
		t.Fatal("аплоадер может только загружать")
	}
	if !RoleSudo.CanAdminister() || RoleSudo.IsOwner() {
		t.Fatal("sudo администрирует, но не владелец")
	}
	if !RoleOwner.IsOwner() || !RoleOwner.CanUpload() {
		t.Fatal("владелец может всё")
	}
	if role, ok := ParseRole(" SUDO "); !ok || role != RoleSudo {
		t.Fatalf("ожидали sudo, получили %v", role)
	}
}
