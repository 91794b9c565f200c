// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package extensions has helpers for the map[string]*anypb.Any extensions
// field found on most Open Match protobuf messages.
package extensions

import (
	"errors"

	"google.golang.org/protobuf/types/known/anypb"
	knownpb "google.golang.org/protobuf/types/known/wrapperspb"
)

var (
	NoSuchKeyError = errors.New("Extension field contains no such key")
)

// Combine copies every entry of b into a, returning a. Values in b win on
// key collisions. A nil a is allocated.
func Combine(a map[string]*anypb.Any, b map[string]*anypb.Any) map[string]*anypb.Any {
	if a == nil {
		a = make(map[string]*anypb.Any, len(b))
	}
	for k, v := range b {
		a[k] = v
	}
	return a
}

// String returns the string stored at exKey.
func String(ex map[string]*anypb.Any, exKey string) (string, error) {
	stringPb := &knownpb.StringValue{}
	exValue, ok := ex[exKey]
	if !ok {
		return "", NoSuchKeyError
	}
	if err := exValue.UnmarshalTo(stringPb); err != nil {
		return "", err
	}
	return stringPb.Value, nil
}

// Int32 returns the int32 stored at exKey as an int.
func Int32(ex map[string]*anypb.Any, exKey string) (int, error) {
	int32Pb := &knownpb.Int32Value{}
	exValue, ok := ex[exKey]
	if !ok {
		return 0, NoSuchKeyError
	}
	if err := exValue.UnmarshalTo(int32Pb); err != nil {
		return 0, err
	}
	return int(int32Pb.Value), nil
}

// AnypbIntMap wraps every value of in as an Int32Value.
func AnypbIntMap(in map[string]int32) map[string]*anypb.Any {
	out := make(map[string]*anypb.Any, len(in))
	for key, value := range in {
		anyValue, err := anypb.New(&knownpb.Int32Value{Value: value})
		if err != nil {
			panic(err)
		}
		out[key] = anyValue
	}
	return out
}

// AnypbString wraps value as a StringValue under key.
func AnypbString(key, value string) map[string]*anypb.Any {
	anyValue, err := anypb.New(&knownpb.StringValue{Value: value})
	if err != nil {
		panic(err)
	}
	return map[string]*anypb.Any{key: anyValue}
}
