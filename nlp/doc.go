// Package nlp is the client side of the external annotation service.
//
// An Annotator sends the text of one document to the service and returns the
// list of annotation entries found in the response. Two wire dialects are
// supported and chosen once at construction:
//
//   - the default dialect posts a JSON envelope and reads entries from
//     result.annotations.entities, attaching medcat_info and the result
//     timestamp to every entry when present
//   - the gate-nlp dialect posts raw text and flattens the per-type entity
//     lists into a single sequence with generated ids
//
// Failed calls are retried with exponential backoff. Transport errors,
// non-2xx responses, empty bodies and malformed envelopes all count as
// failures; a well-formed response with no entries does not.
package nlp
