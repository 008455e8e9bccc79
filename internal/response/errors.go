package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrInvalidSessionKey  ErrCode = "INVALID_SESSION_KEY"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden        ErrCode = "FORBIDDEN"
	ErrPermissionDenied ErrCode = "PERMISSION_DENIED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound         ErrCode = "NOT_FOUND"
	ErrQuizNotFound     ErrCode = "QUIZ_NOT_FOUND"
	ErrTemplateNotFound ErrCode = "TEMPLATE_NOT_FOUND"
	ErrOverrideNotFound ErrCode = "OVERRIDE_NOT_FOUND"
	ErrTemplateInUse    ErrCode = "TEMPLATE_IN_USE"

	// ─── SEB-specific ──────────────────────────────────────────────────
	ErrSEBRequired     ErrCode = "SEB_REQUIRED"
	ErrInvalidSEBKeys  ErrCode = "INVALID_SEB_KEYS"
	ErrSettingsLocked  ErrCode = "SETTINGS_LOCKED"
	ErrNoConfigFile    ErrCode = "NO_CONFIG_FILE"
	ErrSEBNotRequired  ErrCode = "SEB_NOT_REQUIRED"
	ErrRedirectBlocked ErrCode = "REDIRECT_NOT_ALLOWED"

	// ─── Media ─────────────────────────────────────────────────────────
	ErrFileRequired    ErrCode = "FILE_REQUIRED"
	ErrUnsupportedFile ErrCode = "UNSUPPORTED_FILE_TYPE"
	ErrFileTooLarge    ErrCode = "FILE_TOO_LARGE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Email atau kata sandi salah."
	case ErrSessionInvalidated:
		return "Sesi Anda telah berakhir. Silakan login kembali."
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."
	case ErrInvalidSessionKey:
		return "Tautan sesi tidak valid atau sudah kedaluwarsa. Silakan login kembali."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "Anda tidak memiliki izin untuk mengakses sumber daya ini."
	case ErrPermissionDenied:
		return "Izin ditolak."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."
	case ErrQuizNotFound:
		return "Kuis tidak ditemukan."
	case ErrTemplateNotFound:
		return "Templat Safe Exam Browser tidak ditemukan."
	case ErrOverrideNotFound:
		return "Pengecualian kuis tidak ditemukan."
	case ErrTemplateInUse:
		return "Templat tidak dapat dihapus karena masih digunakan oleh kuis."

	// ─── SEB-specific ──────────────────────────────────────────────────
	case ErrSEBRequired:
		return "Kuis ini hanya dapat dikerjakan menggunakan Safe Exam Browser."
	case ErrInvalidSEBKeys:
		return "Konfigurasi Safe Exam Browser tidak sesuai dengan kuis ini."
	case ErrSettingsLocked:
		return "Pengaturan Safe Exam Browser terkunci karena kuis sudah dikerjakan."
	case ErrNoConfigFile:
		return "Kuis ini tidak memiliki file konfigurasi Safe Exam Browser."
	case ErrSEBNotRequired:
		return "Kuis ini tidak mewajibkan Safe Exam Browser."
	case ErrRedirectBlocked:
		return "Alamat tujuan tidak diizinkan."

	// ─── Media ─────────────────────────────────────────────────────────
	case ErrFileRequired:
		return "Unggah file diperlukan."
	case ErrUnsupportedFile:
		return "Jenis file tidak didukung. Unggah file .seb berformat XML."
	case ErrFileTooLarge:
		return "Ukuran file melebihi batas."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
