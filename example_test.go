package atomsnap_test

import (
	"fmt"

	"github.com/minseok127/atomsnap"
)

// ExampleGate demonstrates using a Gate to protect a global status string
// (maybe the body a /healthz handler returns), the same role
// balasanjay/lrlock's own ExampleLRMutex fills for LRMutex. The getter and
// setter would ordinarily be package-level functions; here they're local
// closures for the sake of the example.
func ExampleGate() {
	gate, err := atomsnap.NewGate(atomsnap.Config{
		OnFree: func(object, freeContext any) {},
	})
	if err != nil {
		panic(err)
	}

	publish := func(status string) {
		v, err := gate.MakeVersion()
		if err != nil {
			panic(err)
		}
		v.SetObject(status, nil)
		gate.ExchangeVersion(v)
	}

	read := func() string {
		v := gate.AcquireVersion()
		if v == nil {
			return ""
		}
		defer v.Release()
		return v.Object().(string)
	}

	publish("starting")
	fmt.Println(read())

	publish("ready")
	fmt.Println(read())

	// Output:
	// starting
	// ready
}
