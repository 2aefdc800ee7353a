package errs

// The set of error codes.
var (
	// OK indicates the operation was successful.
	OK = ErrCode{value: 0}

	// InvalidArgument indicates client specified an invalid argument.
	InvalidArgument = ErrCode{value: 1}

	// NotFound means some requested entity was not found.
	NotFound = ErrCode{value: 2}

	// Conflict indicates the request conflicts with the entity's current state.
	Conflict = ErrCode{value: 3}

	// Gone indicates the entity exists but its backing data no longer does.
	Gone = ErrCode{value: 4}

	// Internal errors. Some invariants expected by the underlying system have
	// been broken.
	Internal = ErrCode{value: 5}

	// Unavailable indicates the service is currently unavailable.
	Unavailable = ErrCode{value: 6}
)

var codeNumbers = map[string]ErrCode{
	"ok":               OK,
	"invalid_argument": InvalidArgument,
	"not_found":        NotFound,
	"conflict":         Conflict,
	"gone":             Gone,
	"internal":         Internal,
	"unavailable":      Unavailable,
}

var codeNames map[ErrCode]string

func init() {
	codeNames = make(map[ErrCode]string, len(codeNumbers))
	for k, v := range codeNumbers {
		codeNames[v] = k
	}
}
