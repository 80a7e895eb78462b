// Command kvdbdemo exercises Open/Put/Get/Delete/Close end to end against
// a file-backed device, the way cmd/demo did for the teacher's hashindex
// package.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/intellect4all/kvdb/kvengine"
)

func main() {
	path := flag.String("device", "./kvdb.img", "path to the backing device file")
	segmentSize := flag.Int64("segment-size", 16<<20, "fixed segment size in bytes")
	buckets := flag.Uint("buckets", 1<<14, "hash index bucket capacity")
	flag.Parse()

	cfg := kvengine.DefaultConfig()
	cfg.DevicePath = *path
	cfg.SegmentSize = *segmentSize
	cfg.BucketCapacity = uint32(*buckets)

	e, err := kvengine.Open(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer e.Close()

	if err := e.Put([]byte("name"), []byte("Alice")); err != nil {
		log.Fatal(err)
	}
	if err := e.Put([]byte("age"), []byte("30")); err != nil {
		log.Fatal(err)
	}
	if err := e.Put([]byte("city"), []byte("NYC")); err != nil {
		log.Fatal(err)
	}

	name, err := e.Get([]byte("name"))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Name: %s\n", name)

	if err := e.Delete([]byte("age")); err != nil {
		log.Fatal(err)
	}
	if _, err := e.Get([]byte("age")); err != nil {
		fmt.Printf("age: %v\n", err)
	}

	stats := e.Stats()
	fmt.Printf("Stats: %+v\n", stats)
}
