package errors

// SQLSTATE codes used by the engine, following the PostgreSQL error code
// conventions: https://www.postgresql.org/docs/current/errcodes-appendix.html

// Class 22 - Data Exception
const (
	DataException    = "22000"
	InvalidParameter = "22023"
)

// Class 42 - Syntax Error or Access Rule Violation
const (
	DatatypeMismatch = "42804"
)

// Class 53 - Insufficient Resources
const (
	InsufficientResources    = "53000"
	DiskFull                 = "53100"
	OutOfMemory              = "53200"
	ConfigurationLimitExceed = "53400"
)

// Class 58 - System Error
const (
	SystemError = "58000"
	IOError     = "58030"
)

// Class XX - Internal Error
const (
	InternalError = "XX000"
)
