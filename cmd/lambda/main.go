package main

import (
	mz "mandelzoom/pkg/lambda"

	"github.com/aws/aws-lambda-go/lambda"
)

func main() {
	lambda.Start(mz.RenderFrame)
}
