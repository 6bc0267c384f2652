package utils

// Error is a string-based error type usable in const declarations
type Error string

func (e Error) Error() string {
	return string(e)
}

// PanicOnError panics if err is not nil; meant for process startup
func PanicOnError(err error) {
	if err != nil {
		panic(err)
	}
}
