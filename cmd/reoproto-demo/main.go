// Command reoproto-demo wires up a tiny synchronous-channel protocol and
// runs a putter and a getter against it, printing the value the getter
// receives and the runtime's counters.
package main

import (
	"fmt"

	"github.com/NikoMalik/reoproto/internal/typeinfo"

	"github.com/NikoMalik/reoproto"
)

const (
	locPutter proto.LocId = iota
	locGetter
	numLocs
)

func main() {
	intInfo := typeinfo.Of[int]()

	def := proto.NewProtoDef(int(numLocs)).
		SetKind(locPutter, proto.PortPutter).
		SetKind(locGetter, proto.PortGetter).
		SetType(locPutter, intInfo).
		SetType(locGetter, intInfo).
		AddRule(proto.RuleDef{
			Guard: proto.GuardTrue{},
			Actions: []proto.ActionDef{
				{Putter: locPutter, Getters: []proto.LocId{locGetter}},
			},
		})

	h, err := proto.Build(def)
	if err != nil {
		panic(err)
	}

	putter, _, err := proto.Claim[int](h, locPutter)
	if err != nil {
		panic(err)
	}
	_, getter, err := proto.Claim[int](h, locGetter)
	if err != nil {
		panic(err)
	}

	done := make(chan int)
	go func() {
		done <- getter.Get()
	}()

	putter.Put(42)
	fmt.Println("received:", <-done)
	fmt.Printf("stats: %+v\n", h.Stats())
}
