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

// Command diskfsutil formats or inspects a diskfs disk image file,
// exercising the facade the way samples/mount_memfs exercises memfs.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/jacobsa/timeutil"

	"github.com/jacobsa/diskfs"
	"github.com/jacobsa/diskfs/blockdev"
)

var fImage = flag.String("image", "", "Path to the disk image file.")
var fFormat = flag.Bool("format", false, "Create a fresh, empty image.")
var fSectors = flag.Uint64("sectors", 8192, "Sector count when --format is set.")
var fList = flag.String("list", "/", "Directory path to list after opening.")

func main() {
	flag.Parse()

	if *fImage == "" {
		log.Fatalf("You must set --image.")
	}

	var dev blockdev.BlockDevice
	var err error
	if *fFormat {
		dev, err = blockdev.CreateFileDevice(*fImage, *fSectors)
	} else {
		dev, err = blockdev.OpenFileDevice(*fImage)
	}
	if err != nil {
		log.Fatalf("opening %s: %v", *fImage, err)
	}

	fs, err := diskfs.New(dev, timeutil.RealClock(), *fFormat)
	if err != nil {
		log.Fatalf("diskfs.New: %v", err)
	}

	ctx := context.Background()
	d, err := fs.OpenDir(ctx, *fList, diskfs.RootDir)
	if err != nil {
		log.Fatalf("OpenDir(%s): %v", *fList, err)
	}

	names, err := d.List()
	if err != nil {
		log.Fatalf("List: %v", err)
	}
	for _, name := range names {
		log.Printf("%s", name)
	}
	fs.CloseDir(d)

	if err := fs.Done(); err != nil {
		log.Fatalf("Done: %v", err)
	}
}
