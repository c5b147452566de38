package dto

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ResetPasswordRequest struct {
	Password string `json:"password"`
}

type ProductKeyRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type ProductKeyResponse struct {
	ProductKey string `json:"product_key"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
