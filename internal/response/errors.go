package response

import "net/http"

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrSessionInvalidated    ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired         ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid          ErrCode = "TOKEN_INVALID"
	ErrLoginCheckUnavailable ErrCode = "LOGIN_CHECK_UNAVAILABLE"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrPermissionDenied  ErrCode = "PERMISSION_DENIED"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrAdminAccessOnly   ErrCode = "ADMIN_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrUnknownAction  ErrCode = "UNKNOWN_ACTION"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Exam session ──────────────────────────────────────────────────
	ErrNoQuestions            ErrCode = "NO_QUESTIONS"
	ErrQuestionSourceDown     ErrCode = "QUESTION_SOURCE_UNAVAILABLE"
	ErrSessionNotStarted      ErrCode = "SESSION_NOT_STARTED"
	ErrSessionAlreadyStarted  ErrCode = "SESSION_ALREADY_STARTED"
	ErrSessionCompleted       ErrCode = "SESSION_COMPLETED"
	ErrSessionClosed          ErrCode = "SESSION_CLOSED"
	ErrExamAlreadySubmitted   ErrCode = "EXAM_ALREADY_SUBMITTED"
	ErrNoLiveSession          ErrCode = "NO_LIVE_SESSION"
	ErrAttemptPersistenceFail ErrCode = "ATTEMPT_PERSISTENCE_FAILED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"
	ErrInternal          ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrSessionInvalidated:
		return "Sesi Anda telah berakhir. Silakan login kembali."
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."
	case ErrLoginCheckUnavailable:
		return "Status login tidak dapat diperiksa. Silakan coba lagi."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrPermissionDenied:
		return "Izin ditolak."
	case ErrStudentAccessOnly:
		return "Sumber daya ini terbatas untuk siswa."
	case ErrAdminAccessOnly:
		return "Sumber daya ini terbatas untuk administrator."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."
	case ErrUnknownAction:
		return "Aksi tidak dikenal."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."

	// ─── Exam session ──────────────────────────────────────────────────
	case ErrNoQuestions:
		return "Ujian ini tidak memiliki pertanyaan."
	case ErrQuestionSourceDown:
		return "Soal ujian tidak dapat dimuat. Silakan coba lagi."
	case ErrSessionNotStarted:
		return "Sesi ujian belum dimulai."
	case ErrSessionAlreadyStarted:
		return "Sesi ujian sudah dimulai."
	case ErrSessionCompleted:
		return "Ujian sudah dikumpulkan."
	case ErrSessionClosed:
		return "Sesi ujian telah ditutup."
	case ErrExamAlreadySubmitted:
		return "Anda sudah mengumpulkan ujian ini."
	case ErrNoLiveSession:
		return "Siswa tidak sedang mengerjakan ujian ini."
	case ErrAttemptPersistenceFail:
		return "Nilai sudah dihitung tetapi belum tersimpan."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}

// HTTPStatus returns the status code a given error code is served with.
func HTTPStatus(code ErrCode) int {
	switch code {
	case ErrTokenRequired, ErrTokenInvalid, ErrSessionInvalidated:
		return http.StatusUnauthorized
	case ErrPermissionDenied, ErrStudentAccessOnly, ErrAdminAccessOnly:
		return http.StatusForbidden
	case ErrValidation, ErrInvalidID, ErrInvalidPayload, ErrUnknownAction:
		return http.StatusBadRequest
	case ErrNotFound, ErrNoQuestions, ErrNoLiveSession:
		return http.StatusNotFound
	case ErrSessionNotStarted, ErrSessionAlreadyStarted, ErrSessionCompleted, ErrSessionClosed, ErrExamAlreadySubmitted:
		return http.StatusConflict
	case ErrRateLimitExceeded:
		return http.StatusTooManyRequests
	case ErrQuestionSourceDown, ErrLoginCheckUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
