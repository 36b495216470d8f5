package od

import (
	"bytes"
	_ "embed"
	"fmt"
	"regexp"
	"strconv"
	"sync"

	log "github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"
)

//go:embed md.eds
var rawDefaultOd []byte

var (
	defaultOnce sync.Once
	defaultOd   *ObjectDictionary
)

// Return embeded object dictionary of the motor drive
func Default() *ObjectDictionary {
	defaultOnce.Do(func() {
		parsed, err := Parse(rawDefaultOd)
		if err != nil {
			panic(err)
		}
		defaultOd = parsed
	})
	return defaultOd
}

// Get index & subindex matching
var matchIdxRegExp = regexp.MustCompile(`^[0-9A-Fa-f]{4}$`)
var matchSubidxRegExp = regexp.MustCompile(`^([0-9A-Fa-f]{4})[sS]ub([0-9A-Fa-f]+)$`)

// Parse an EDS file
// file can be either a path or an *os.File or []byte
func Parse(file any) (*ObjectDictionary, error) {
	od := NewOD()
	edsFile, err := ini.Load(file)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	_, _ = edsFile.WriteTo(&buf)
	od.rawOd = buf.Bytes()

	// Names of records & arrays, used to qualify their members
	objectNames := make(map[uint16]string)

	for _, section := range edsFile.Sections() {
		sectionName := section.Name()

		if matchIdxRegExp.MatchString(sectionName) {
			idx, err := strconv.ParseUint(sectionName, 16, 16)
			if err != nil {
				return nil, err
			}
			index := uint16(idx)
			name := section.Key("ParameterName").String()
			objectType := uint8(ObjectTypeVAR)
			if objType, err := strconv.ParseUint(section.Key("ObjectType").Value(), 0, 8); err == nil {
				objectType = uint8(objType)
			}
			switch objectType {
			case ObjectTypeVAR, ObjectTypeDOMAIN:
				entry, err := newEntryFromSection(section, name, index, 0)
				if err != nil {
					return nil, err
				}
				od.AddEntry(entry)
			case ObjectTypeARRAY, ObjectTypeRECORD:
				objectNames[index] = name
			default:
				return nil, fmt.Errorf("[OD] unknown object type whilst parsing EDS %v", objectType)
			}
		}

		if matches := matchSubidxRegExp.FindStringSubmatch(sectionName); matches != nil {
			idx, err := strconv.ParseUint(matches[1], 16, 16)
			if err != nil {
				return nil, err
			}
			sidx, err := strconv.ParseUint(matches[2], 16, 8)
			if err != nil {
				return nil, err
			}
			index := uint16(idx)
			parent, ok := objectNames[index]
			if !ok {
				return nil, fmt.Errorf("[OD] index with id x%x not found", index)
			}
			entry, err := newEntryFromSection(section, section.Key("ParameterName").String(), index, uint8(sidx))
			if err != nil {
				return nil, err
			}
			entry.ObjectName = parent
			od.AddEntry(entry)
		}
	}
	log.Debugf("[OD] parsed %v entries", od.Len())
	return od, nil
}

func newEntryFromSection(section *ini.Section, name string, index uint16, subIndex uint8) (*Entry, error) {
	accessType, err := section.GetKey("AccessType")
	if err != nil {
		return nil, fmt.Errorf("failed to get 'AccessType' for x%x:x%x", index, subIndex)
	}
	dataType, err := strconv.ParseUint(section.Key("DataType").Value(), 0, 8)
	if err != nil {
		return nil, fmt.Errorf("failed to parse 'DataType' for x%x:x%x : %w", index, subIndex, err)
	}
	pdoMapping := false
	if pM, err := section.GetKey("PDOMapping"); err == nil {
		pdoMapping, err = pM.Bool()
		if err != nil {
			return nil, err
		}
	}
	entry := &Entry{
		Index:     index,
		SubIndex:  subIndex,
		Name:      name,
		DataType:  uint8(dataType),
		Attribute: EncodeAttribute(accessType.String(), pdoMapping, uint8(dataType)),
	}
	if defaultValue, err := section.GetKey("DefaultValue"); err == nil {
		entry.Default, err = EncodeFromString(defaultValue.Value(), entry.DataType)
		if err != nil {
			return nil, fmt.Errorf("failed to parse 'DefaultValue' for x%x:x%x : %w", index, subIndex, err)
		}
	}
	return entry, nil
}
