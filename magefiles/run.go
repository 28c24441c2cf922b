//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Runs the testbed against the assets folder, watching it for changes.
func (Run) Testbed() error {
	fmt.Println("Run testbed...")
	if _, err := executeCmd("go", withArgs("run", "-tags", "debug", "main.go", "-config", "binder.toml"), withStream()); err != nil {
		return err
	}
	return nil
}
