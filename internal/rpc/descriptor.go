package rpc

import (
	_ "embed"
	"fmt"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
)

// ProtoFile is the import path the embedded schema is parsed under.
const ProtoFile = "benchhub/v1/aggregator.proto"

//go:embed aggregator.proto
var aggregatorProto string

// aggregator is the parsed Aggregator service. The schema ships with the
// binary, so a parse failure is a build defect.
var aggregator = mustLoadService()

func mustLoadService() *desc.ServiceDescriptor {
	svc, err := loadService()
	if err != nil {
		panic(err)
	}
	return svc
}

func loadService() (*desc.ServiceDescriptor, error) {
	parser := protoparse.Parser{
		Accessor: protoparse.FileContentsFromMap(map[string]string{ProtoFile: aggregatorProto}),
	}
	files, err := parser.ParseFiles(ProtoFile)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", ProtoFile, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no descriptors parsed from %s", ProtoFile)
	}
	svc := files[0].FindService(ServiceName)
	if svc == nil {
		return nil, fmt.Errorf("service %s not found in %s", ServiceName, ProtoFile)
	}
	for _, name := range []string{"RegisterClient", "CloseClient", "SubmitSamples", "GetConfig"} {
		if svc.FindMethodByName(name) == nil {
			return nil, fmt.Errorf("method %s not found in service %s", name, ServiceName)
		}
	}
	return svc, nil
}

// Service returns the descriptor of the Aggregator service, for callers that
// build their own requests (grpcurl-style tooling, tests).
func Service() *desc.ServiceDescriptor { return aggregator }

func method(name string) *desc.MethodDescriptor {
	return aggregator.FindMethodByName(name)
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}
