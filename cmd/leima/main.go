// Leima - Untagged Resource Audit Scanner
// Scan. Report. Done.
package main

func main() {
	Execute()
}
