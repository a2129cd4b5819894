package document

import "github.com/dataplane/orm/codec"

// mongoIDKey is Mongo's reserved primary key field, distinct from the
// engine's wire name "id" produced by codec.EncodeInstance (spec §4.1
// field naming is backend-agnostic; the document backend is the one
// place that must special-case the identity field).
const mongoIDKey = "_id"

// toMongoDoc renames the codec's "id" wire key to "_id" so the driver
// treats it as the document's primary key rather than a regular field.
func toMongoDoc(doc codec.Doc) codec.Doc {
	if v, ok := doc["id"]; ok {
		delete(doc, "id")
		doc[mongoIDKey] = v
	}
	return doc
}

// fromMongoDoc is toMongoDoc's inverse, applied to rows read back from
// the collection before codec.DecodeRow populates the instance.
func fromMongoDoc(doc codec.Doc) codec.Doc {
	if v, ok := doc[mongoIDKey]; ok {
		delete(doc, mongoIDKey)
		doc["id"] = v
	}
	return doc
}
