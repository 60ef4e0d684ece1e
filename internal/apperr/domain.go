package apperr

var (
	ErrUserNotFound        = NotFound("user not found")
	ErrHandleTaken         = Conflict("handle is already taken")
	ErrSelfContact         = Conflict("cannot add yourself")
	ErrContactExists       = Conflict("already a contact")
	ErrReversePending      = Conflict("a request from this user is already pending")
	ErrRequestNotFound     = NotFound("contact request not found")
	ErrContactNotFound     = NotFound("contact not found")
	ErrNotRecipient        = Forbidden("request is not addressed to you")
	ErrNotContacts         = Forbidden("users are not accepted contacts")
	ErrEphemeralNotFound   = NotFound("no ephemeral key found")
	ErrMessageNotFound     = NotFound("message not found")
	ErrNotMessageRecipient = Forbidden("message is not addressed to you")
	ErrInvalidKey          = InvalidArgument("key material must be a 32 byte curve25519 public key")
	ErrInvalidIdentityKey  = InvalidArgument("identity key is missing or too long")
	ErrInvalidSignature    = InvalidArgument("signed prekey signature is missing")
	ErrDuplicatePrekeyID   = InvalidArgument("duplicate prekey id in batch")
	ErrEmptyBatch          = InvalidArgument("prekey batch is empty")
	ErrBatchTooLarge       = InvalidArgument("prekey batch is too large")
	ErrEmptyCiphertext     = InvalidArgument("ciphertext is empty")
	ErrCiphertextTooLarge  = InvalidArgument("ciphertext is too large")
	ErrInvalidKind         = InvalidArgument("unknown message kind")
	ErrInvalidHandle       = InvalidArgument("handle must look like an email address")
	ErrInvalidToken        = Unauthorized("invalid or expired token")
	ErrMissingToken        = Unauthorized("missing token")
)
