package common

import "time"

// AuthorizationHeaderName carries "Bearer <access token>" on HTTP requests.
const AuthorizationHeaderName = "Authorization"

// ChallengeTTL bounds every single-use ceremony challenge and OAuth state.
const ChallengeTTL = 5 * time.Minute

// VerificationCodeTTL bounds a sign-up verification code. A code is
// consumed by its first redemption attempt.
const VerificationCodeTTL = 10 * time.Minute

// VerificationCodeLength is the number of digits in a verification code.
const VerificationCodeLength = 6
