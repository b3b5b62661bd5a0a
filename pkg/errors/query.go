package errors

import stdErrors "errors"

// QueryError is a specialized error type for the catalog, relational-algebra,
// and constraint layers (L4, L7, L8). It follows the same embedding pattern
// as StorageError/IndexError/EngineError, adding the object name and
// attribute context needed to explain why a statement was rejected.
type QueryError struct {
	*baseError
	object    string // Segment, constraint, or index name at fault.
	attribute string // Attribute name at fault, if applicable.
}

// NewQueryError creates a new query-layer error.
func NewQueryError(err error, code ErrorCode, msg string) *QueryError {
	return &QueryError{baseError: NewBaseError(err, code, msg)}
}

// WithMessage updates the error message while maintaining the QueryError type.
func (qe *QueryError) WithMessage(msg string) *QueryError {
	qe.baseError.WithMessage(msg)
	return qe
}

// WithCode sets the error code while preserving the QueryError type.
func (qe *QueryError) WithCode(code ErrorCode) *QueryError {
	qe.baseError.WithCode(code)
	return qe
}

// WithDetail adds contextual information while maintaining the QueryError type.
func (qe *QueryError) WithDetail(key string, value any) *QueryError {
	qe.baseError.WithDetail(key, value)
	return qe
}

// WithObject records the segment, constraint, or index name at fault.
func (qe *QueryError) WithObject(name string) *QueryError {
	qe.object = name
	return qe
}

// WithAttribute records the attribute name at fault.
func (qe *QueryError) WithAttribute(name string) *QueryError {
	qe.attribute = name
	return qe
}

// Object returns the segment, constraint, or index name at fault.
func (qe *QueryError) Object() string {
	return qe.object
}

// Attribute returns the attribute name at fault.
func (qe *QueryError) Attribute() string {
	return qe.attribute
}

// IsQueryError checks if the given error is a QueryError or contains one in
// its error chain.
func IsQueryError(err error) bool {
	var qe *QueryError
	return stdErrors.As(err, &qe)
}

// NewNotFoundError builds the error a catalog or index lookup returns when
// nothing matches.
func NewNotFoundError(object string) *QueryError {
	return NewQueryError(nil, ErrorCodeNotFound, "no matching entry found").WithObject(object)
}

// NewSchemaViolationError builds the error a type/arity mismatch or unknown
// attribute reference returns.
func NewSchemaViolationError(object, attribute, reason string) *QueryError {
	return NewQueryError(nil, ErrorCodeSchemaViolation, reason).
		WithObject(object).
		WithAttribute(attribute)
}

// NewConstraintViolationError builds the error the constraint engine returns
// when a NOT NULL/UNIQUE/CHECK/BETWEEN/referential rule rejects a row.
func NewConstraintViolationError(constraintName, object, attribute, reason string) *QueryError {
	return NewQueryError(nil, ErrorCodeConstraintViolation, reason).
		WithObject(object).
		WithAttribute(attribute).
		WithDetail("constraintName", constraintName)
}

// NewDuplicateNameError builds the error returned when a segment, index, or
// constraint name collides with an existing catalog entry.
func NewDuplicateNameError(kind, name string) *QueryError {
	return NewQueryError(nil, ErrorCodeDuplicateName, "name already in use: "+name).
		WithObject(name).
		WithDetail("kind", kind)
}
