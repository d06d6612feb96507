package dto

type RegisterFCMTokenRequest struct {
	Token      string `json:"token" binding:"required"`
	DeviceInfo string `json:"device_info"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

type DevTokenRequest struct {
	Email string `json:"email" binding:"required,email"`
	Name  string `json:"name"`
}
