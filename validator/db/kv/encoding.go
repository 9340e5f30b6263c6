package kv

import (
	"context"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func encode(ctx context.Context, v interface{}) ([]byte, error) {
	_, span := trace.StartSpan(ctx, "ValidatorDB.encode")
	defer span.End()
	if v == nil {
		return nil, errors.New("cannot encode nil value")
	}
	return json.Marshal(v)
}

func decode(ctx context.Context, enc []byte, v interface{}) error {
	_, span := trace.StartSpan(ctx, "ValidatorDB.decode")
	defer span.End()
	if v == nil {
		return errors.New("cannot decode into nil value")
	}
	return json.Unmarshal(enc, v)
}
