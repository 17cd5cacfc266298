package rpc

import (
	"context"
	"reflect"
	"sort"
	"unicode"

	mapset "github.com/deckarep/golang-set"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
)

// ErrDuplicateMethodName is matched by every DuplicateMethodNameError.
var ErrDuplicateMethodName = errors.New("duplicate method name")

// DuplicateMethodNameError is returned when two namespaces expose the same method.
type DuplicateMethodNameError struct {
	Name string
}

func (e *DuplicateMethodNameError) Error() string {
	return "duplicate method name: " + e.Name
}

// Is makes errors.Is(err, ErrDuplicateMethodName) work.
func (e *DuplicateMethodNameError) Is(target error) bool {
	return target == ErrDuplicateMethodName
}

var (
	contextType      = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType        = reflect.TypeOf((*error)(nil)).Elem()
	subscriptionType = reflect.TypeOf(rpc.Subscription{})
)

// MethodSurface is the set of named methods a server exposes, along with the APIs
// providing them. A surface never holds the same method name twice.
type MethodSurface struct {
	names mapset.Set
	apis  []rpc.API
}

// NewMethodSurface builds a surface from the given APIs.
func NewMethodSurface(apis ...rpc.API) (*MethodSurface, error) {
	s := &MethodSurface{names: mapset.NewThreadUnsafeSet()}
	for _, api := range apis {
		if err := s.add(api); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Merge folds the given surfaces into a new one. It fails on the first method name
// found in more than one surface. Inputs are left untouched.
func Merge(surfaces ...*MethodSurface) (*MethodSurface, error) {
	merged := &MethodSurface{names: mapset.NewThreadUnsafeSet()}
	for _, s := range surfaces {
		if s == nil {
			continue
		}
		if dup := merged.names.Intersect(s.names); dup.Cardinality() > 0 {
			return nil, &DuplicateMethodNameError{Name: firstSorted(dup)}
		}
		merged.names = merged.names.Union(s.names)
		merged.apis = append(merged.apis, s.apis...)
	}
	return merged, nil
}

// MergeAPIs builds one surface per API and merges them.
func MergeAPIs(apis ...rpc.API) (*MethodSurface, error) {
	surfaces := make([]*MethodSurface, 0, len(apis))
	for _, api := range apis {
		s, err := NewMethodSurface(api)
		if err != nil {
			return nil, err
		}
		surfaces = append(surfaces, s)
	}
	return Merge(surfaces...)
}

// Names returns the sorted method names of the surface.
func (s *MethodSurface) Names() []string {
	names := make([]string, 0, s.names.Cardinality())
	for _, n := range s.names.ToSlice() {
		names = append(names, n.(string))
	}
	sort.Strings(names)
	return names
}

// Has reports whether the surface exposes name.
func (s *MethodSurface) Has(name string) bool {
	return s.names.Contains(name)
}

// Len is the number of methods in the surface.
func (s *MethodSurface) Len() int {
	return s.names.Cardinality()
}

// APIs returns the APIs backing the surface.
func (s *MethodSurface) APIs() []rpc.API {
	return append([]rpc.API(nil), s.apis...)
}

// NewServer creates an RPC server with every API of the surface registered.
func (s *MethodSurface) NewServer() (*rpc.Server, error) {
	server := rpc.NewServer()
	for _, api := range s.apis {
		if err := server.RegisterName(api.Namespace, api.Service); err != nil {
			server.Stop()
			return nil, errors.Wrapf(err, "cannot register namespace %v", api.Namespace)
		}
	}
	return server, nil
}

func (s *MethodSurface) add(api rpc.API) error {
	names := methodNames(api)
	if len(names) == 0 {
		return errors.Errorf("namespace %v has no suitable methods", api.Namespace)
	}
	for _, name := range names {
		if s.names.Contains(name) {
			return &DuplicateMethodNameError{Name: name}
		}
		s.names.Add(name)
	}
	s.apis = append(s.apis, api)
	return nil
}

// methodNames lists the names the rpc server will expose for api, i.e.
// namespace_method with the first letter of the method lowered. Subscriptions are
// reached through namespace_subscribe and are listed as namespace_subscribe(name).
func methodNames(api rpc.API) []string {
	var names []string
	typ := reflect.TypeOf(api.Service)
	if typ == nil {
		return nil
	}
	for i := 0; i < typ.NumMethod(); i++ {
		method := typ.Method(i)
		if method.PkgPath != "" || !isCallback(method.Type) {
			continue
		}
		if isSubscription(method.Type) {
			names = append(names, api.Namespace+"_subscribe("+formatName(method.Name)+")")
			continue
		}
		names = append(names, api.Namespace+"_"+formatName(method.Name))
	}
	return names
}

// isCallback mirrors the rules of the rpc server: at most two results and, when there
// are two, the second one is an error. Subscriptions return (*rpc.Subscription, error).
func isCallback(fntype reflect.Type) bool {
	switch fntype.NumOut() {
	case 0, 1:
		return true
	case 2:
		return fntype.Out(1) == errorType
	}
	return false
}

// isSubscription reports whether the method takes a context and returns a subscription.
func isSubscription(fntype reflect.Type) bool {
	if fntype.NumIn() < 2 || fntype.In(1) != contextType || fntype.NumOut() != 2 {
		return false
	}
	out := fntype.Out(0)
	return out.Kind() == reflect.Ptr && out.Elem() == subscriptionType
}

func formatName(name string) string {
	ret := []rune(name)
	if len(ret) > 0 {
		ret[0] = unicode.ToLower(ret[0])
	}
	return string(ret)
}

func firstSorted(set mapset.Set) string {
	var names []string
	for _, n := range set.ToSlice() {
		names = append(names, n.(string))
	}
	sort.Strings(names)
	return names[0]
}
