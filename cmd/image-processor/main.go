package main

import (
	"github.com/wb-go/wbf/zlog"
)

func main() {
	zlog.Init()
	Execute()
}
