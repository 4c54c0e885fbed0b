package concurrent_test

import (
	"context"
	"fmt"
	"time"

	"github.com/baxromumarov/concurrent"
)

func ExampleChannel() {
	c := concurrent.NewChannel[string](concurrent.WithCapacity(2))

	c.Send("hello")
	c.Send("world")
	fmt.Println("full:", !c.TrySend("!"))

	c.Drain()
	for {
		v, ok := c.Recv()
		if !ok {
			break
		}
		fmt.Println(v)
	}
	// Output:
	// full: true
	// hello
	// world
}

func ExampleChannel_RecvUntil() {
	c := concurrent.NewChannel[int]()

	if _, ok := c.RecvUntil(time.Now().Add(10 * time.Millisecond)); !ok {
		fmt.Println("timed out, open:", c.IsOpen())
	}
	// Output: timed out, open: true
}

func ExampleMultiplexer() {
	m := concurrent.NewMultiplexer[int]()
	a := m.Subscribe()
	b := m.Subscribe()

	m.Send(7)
	va, _ := a.Recv()
	vb, _ := b.Recv()
	fmt.Println(va, vb)

	a.Close()
	fmt.Println("before next send:", m.Subscribers())
	m.Send(8)
	fmt.Println("after next send:", m.Subscribers())
	// Output:
	// 7 7
	// before next send: 2
	// after next send: 1
}

func ExampleNewPool() {
	jobs := concurrent.NewChannel[int]()
	results := concurrent.NewChannel[int]()

	p := concurrent.NewPool(context.Background(), jobs, 3, func(_ context.Context, v int) error {
		results.Send(v * v)
		return nil
	})

	jobs.SendAll([]int{1, 2, 3, 4})
	if err := p.Close(); err != nil {
		fmt.Println("error:", err)
	}

	sum := 0
	for _, v := range results.RecvAll() {
		sum += v
	}
	fmt.Println(sum)
	// Output: 30
}
