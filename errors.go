// Copyright 2014-2022 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package nstack

import "github.com/pkg/errors"

var (
	// ErrInvalidNode is returned when a stored node record would break the
	// structure of the stack it is loaded into.
	ErrInvalidNode = errors.New("nstack: invalid node record")
	// ErrInvalidRoot is returned when a stored root record is malformed.
	ErrInvalidRoot = errors.New("nstack: invalid root record")
)
