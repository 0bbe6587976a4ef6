// Copyright 2025 Philipp Hossner
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

// Package appserver models the application servers managed over M3 and the
// reconciliation state kept for each of them.
//
// The package is pure: SelectAction decides the next step for a server from
// its State alone. Sending requests and applying their results is the job of
// the sync controller (pkg/controller/appserversync).
//
// Selection priority, highest first:
//
//  1. discover certificates (observed certificates not fetched)
//  2. discover configurations (observed configurations not fetched)
//  3. upload the head certificate (PUT when already observed, else POST)
//  4. upload the head configuration (PUT when already observed, else POST)
//  5. delete the head configuration
//  6. delete the head certificate
//  7. purge the head purge entry
//  8. idle
//
// A head entry stays queued until its request is confirmed.
package appserver
