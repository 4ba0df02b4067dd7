package auth

import (
	"errors"
	"testing"
)

func TestMemoryUserRepoCredentials(t *testing.T) {
	repo := NewMemoryUserRepo()

	admin, err := repo.Seed("Admin", "s3cret", true)
	if err != nil {
		t.Fatalf("Ошибка создания пользователя: %v", err)
	}
	if admin.ID != 1 {
		t.Errorf("Первый ID должен быть 1, получен %d", admin.ID)
	}

	if _, err := repo.Seed("admin", "other", false); !errors.Is(err, ErrUserExists) {
		t.Errorf("Ожидалась ErrUserExists, получена %v", err)
	}

	user, err := repo.ValidateCredentials("ADMIN", "s3cret")
	if err != nil {
		t.Fatalf("Верный пароль отклонён: %v", err)
	}
	if !user.IsAdmin {
		t.Error("Флаг администратора потерян")
	}

	if _, err := repo.ValidateCredentials("admin", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Неверный пароль: ожидалась ErrInvalidCredentials, получена %v", err)
	}
	if _, err := repo.ValidateCredentials("ghost", "s3cret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Неизвестный пользователь: ожидалась ErrInvalidCredentials, получена %v", err)
	}

	byID, err := repo.GetUserByID(admin.ID)
	if err != nil || byID.Username != "Admin" {
		t.Errorf("GetUserByID вернул %v, %v", byID, err)
	}
	if _, err := repo.GetUserByID(99); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Ожидалась ErrUserNotFound, получена %v", err)
	}
}
