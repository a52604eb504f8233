package calls

func die() {
	panic("die")
}

func callsDie() {
	die()
	println("never") // want "unreachable code"
}

func indirectDie(f func()) {
	f()
	println("maybe reachable")
}

func callsIndirectThroughDie() {
	indirectDie(die)
	println("after indirect call")
}

type greeter struct{}

func (greeter) hello() {
	println("hello")
}

func callsMethodValue() {
	g := greeter{}
	h := g.hello
	h()
	println("after method value call")
}

func recursiveCountdown(n int) int {
	if n <= 0 {
		return 0
	}
	return recursiveCountdown(n - 1)
}
