// Copyright 2015 Google Inc. All Rights Reserved.
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

// Package diskfs implements a small Unix-like storage core over a raw
// block device: a write-back sector buffer cache, a growable-file inode
// layer with direct/indirect/double-indirect block maps, a free-sector
// allocator, and directories built as ordinary files of fixed-size
// entries.
//
// The primary elements of interest are:
//
//  *  blockdev.BlockDevice, the sector-addressed storage abstraction
//     every other layer is built on.
//
//  *  buffercache.Cache, the bounded write-back cache in front of it.
//
//  *  inode.Layer, the open-inode table and block map.
//
//  *  FileSystem, which wires the above together with an allocator and a
//     directory tree into the five filesys_* operations.
package diskfs
