package models

// User はサインアップで作成されるアカウントです。PasswordHash はレスポンスに含めません。
type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
}
