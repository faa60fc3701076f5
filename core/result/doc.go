// Package result defines the closed result sets returned by the reservation,
// session and authorization operations. Callers switch on the Type field;
// every downstream failure is expressed as a result, never as an error.
package result

// NoPositiveResult is the diagnostic returned when no authorization backend
// produced a definitive answer.
const NoPositiveResult = "No authorization service returned a positive result!"

func name(names []string, i int) string {
	if i < 0 || i >= len(names) {
		return "unknown"
	}
	return names[i]
}
