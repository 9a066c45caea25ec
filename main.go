// Command triton is an SNMPv1 trap receiver.
package main

import "github.com/geekxflood/triton/cmd"

func main() {
	cmd.Execute()
}
