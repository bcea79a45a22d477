// Command attendd runs the attendance session service.
package main

func main() {
	Execute()
}
