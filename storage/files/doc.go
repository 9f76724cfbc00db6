// Copyright 2025 Poiesic Systems
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

// Package files persists a vector collection as a matched pair of files: one
// holding the N x D vector table and one holding the N identifiers.
//
// Both files open with a magic tag and a storage.Manifest carrying a
// generation identifier and the table shape, and close with a BLAKE2b
// checksum. Load refuses a pair whose generations or shapes disagree, so ids
// from one save can never be paired with vectors from another.
//
// Saves write to temporary files beside the targets and rename them into
// place. The previous pair is kept as a backup until both renames succeed,
// and Load falls back to that backup if a crash left the primary pair
// mismatched.
package files
