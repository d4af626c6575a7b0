// Copyright 2026 The hugelink Authors.
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

// Package autoload promotes the importing program's marked segments to
// huge pages during package initialization.
//
//	import _ "hugelink.dev/hugelink/autoload"
//
// Promotion runs before main and never fails the host process.
package autoload

import "hugelink.dev/hugelink"

func init() {
	hugelink.SetupFromEnv()
}
