package txt2kgx

import (
	"errors"

	"github.com/brunobiangulo/txt2kgx/ontology"
	"github.com/brunobiangulo/txt2kgx/response"
)

var (
	// ErrConfigurationMissing is returned when the prompt, schema or a
	// mapping table cannot be read.
	ErrConfigurationMissing = errors.New("txt2kgx: configuration missing")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("txt2kgx: invalid configuration")

	// ErrGenerationFailed is returned when the generation service call fails.
	ErrGenerationFailed = errors.New("txt2kgx: generation failed")

	// ErrPayloadNotFound is returned when a response contains no JSON payload.
	ErrPayloadNotFound = response.ErrPayloadNotFound

	// ErrMalformedPayload is returned when the located payload is not valid JSON.
	ErrMalformedPayload = response.ErrMalformedPayload

	// ErrUnmappedCategory marks a raw entity type absent from the entity table.
	ErrUnmappedCategory = ontology.ErrUnmappedCategory

	// ErrUnmappedPredicate marks a raw relationship absent from the
	// relationship table.
	ErrUnmappedPredicate = ontology.ErrUnmappedPredicate

	// ErrUnsupportedFormat is returned for unrecognized file formats.
	ErrUnsupportedFormat = errors.New("txt2kgx: unsupported document format")

	// ErrParsingFailed is returned when document parsing fails.
	ErrParsingFailed = errors.New("txt2kgx: parsing failed")

	// ErrEmptyDocument is returned when a document has no text to extract from.
	ErrEmptyDocument = errors.New("txt2kgx: document is empty")
)
